package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedRegistry(t *testing.T) {
	ctx := context.Background()
	propertyID := uuid.New()
	reg := NewFixedRegistry(DefaultMonthlyRate).WithFee(propertyID, "2BR", decimal.NewFromInt(2000))

	rate, err := reg.ActiveRate(ctx)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(5000)))

	fee, err := reg.ServiceFee(ctx, propertyID, " 2br ")
	require.NoError(t, err)
	assert.True(t, fee.Equal(decimal.NewFromInt(2000)))

	fee, err = reg.ServiceFee(ctx, propertyID, "studio")
	require.NoError(t, err)
	assert.True(t, fee.IsZero())
}

func TestFixedRegistry_SetActiveRate(t *testing.T) {
	ctx := context.Background()
	reg := NewFixedRegistry(DefaultMonthlyRate)

	err := reg.SetActiveRate(ctx, Rate{Amount: decimal.Zero, EffectiveFrom: time.Now()})
	assert.ErrorIs(t, err, ErrInvalidRate)

	require.NoError(t, reg.SetActiveRate(ctx, Rate{Amount: decimal.NewFromInt(6500), EffectiveFrom: time.Now()}))
	rate, _ := reg.ActiveRate(ctx)
	assert.True(t, rate.Equal(decimal.NewFromInt(6500)))
}
