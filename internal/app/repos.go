package app

import (
	"gorm.io/gorm"

	"github.com/marketloom/pointer-engine/internal/logger"
	"github.com/marketloom/pointer-engine/internal/repos"
)

type Repos struct {
	Pointer     repos.PointerRepo
	ContentNode repos.ContentNodeRepo
	Pattern     repos.PatternRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Pointer:     repos.NewPointerRepo(db, log),
		ContentNode: repos.NewContentNodeRepo(db, log),
		Pattern:     repos.NewPatternRepo(db, log),
	}
}
