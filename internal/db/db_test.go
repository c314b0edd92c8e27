package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	config "github.com/Keoroanthony/orderflow/configs"
	"github.com/Keoroanthony/orderflow/internal/models"
)

func TestOpen(t *testing.T) {
	t.Run("Rejects unknown drivers", func(t *testing.T) {
		_, err := Open(config.DBConfig{Driver: "oracle"})
		assert.ErrorContains(t, err, "unsupported DB_DRIVER")
	})

	t.Run("Migrated schema round-trips products", func(t *testing.T) {
		conn := NewTestDB(t)

		p := models.Product{Name: "Widget", Price: 10, Quantity: 5, IsLimited: true}
		require.NoError(t, conn.Create(&p).Error)

		var stored models.Product
		require.NoError(t, conn.First(&stored, p.ID).Error)
		assert.False(t, stored.CreatedAt.IsZero())
		assert.True(t, stored.IsLimited)
		assert.False(t, stored.IsPublished)
	})

	t.Run("Unique violations are translated", func(t *testing.T) {
		conn := NewTestDB(t)

		require.NoError(t, conn.Create(&models.Product{Name: "Widget"}).Error)
		err := conn.Create(&models.Product{Name: "Widget"}).Error
		assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
	})
}
