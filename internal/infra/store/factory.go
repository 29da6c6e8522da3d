// Package store builds the configured like store backend.
package store

import (
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/sacraltrack/playcore/internal/app/like"
	"github.com/sacraltrack/playcore/internal/infra/appwrite"
	"github.com/sacraltrack/playcore/internal/infra/config"
	"github.com/sacraltrack/playcore/internal/infra/sqlite"
)

// AppwriteSettings represents the settings of the appwrite backend.
type AppwriteSettings struct {
	appwrite.Config `mapstructure:",squash"`
	LikesCollection string `mapstructure:"likes_collection" default:"likes" validate:"required"`
}

// Backend is an opened like store.
type Backend struct {
	Likes like.Store

	// Appwrite is set for the appwrite backend; it also resolves session JWTs.
	Appwrite *appwrite.Client

	db *sql.DB
}

// Close releases the backend's resources.
func (b *Backend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// New opens the like store selected by cfg.
func New(cfg config.StoreConfig) (*Backend, error) {
	zlog.Debug().Msgf("creating like store: type=%s", cfg.Type)

	switch cfg.Type {
	case config.StoreMemory, "":
		return &Backend{Likes: NewMemoryLikeStore()}, nil

	case config.StoreSQLite:
		var settings sqlite.Config
		if err := decodeSettings(cfg.Settings, &settings); err != nil {
			return nil, err
		}
		db, err := sqlite.Open(settings.Path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open sqlite store")
		}
		zlog.Info().Msgf("like store: sqlite path=%s", settings.Path)
		return &Backend{Likes: sqlite.NewLikeStore(db), db: db}, nil

	case config.StoreAppwrite:
		var settings AppwriteSettings
		if err := decodeSettings(cfg.Settings, &settings); err != nil {
			return nil, err
		}
		client, err := appwrite.New(settings.Config)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create appwrite client")
		}
		zlog.Info().Msgf("like store: appwrite endpoint=%s collection=%s", settings.Endpoint, settings.LikesCollection)
		return &Backend{
			Likes:    appwrite.NewLikeStore(client, settings.LikesCollection),
			Appwrite: client,
		}, nil

	default:
		return nil, errors.Newf("unsupported store type: %s", cfg.Type)
	}
}

func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
