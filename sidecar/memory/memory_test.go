package memory

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ziptoc/sidecar"
)

func TestStore_EndRefusesOverwrite(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	publish := func(content string) error {
		return sidecar.InTx(ctx, s, func(tx sidecar.Tx) error {
			if err := tx.Create("x.listing", strings.NewReader(content)); err != nil {
				return err
			}
			return tx.Commit("x.listing")
		})
	}

	require.NoError(t, publish("first"))
	require.ErrorIs(t, publish("second"), sidecar.ErrExist)
	assert.Equal(t, 1, s.Len())

	rc, err := s.Get(ctx, "x.listing")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestStore_EndTwice(t *testing.T) {
	t.Parallel()

	tx, err := New().Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.End())
	assert.ErrorIs(t, tx.End(), sidecar.ErrTxDone)
	assert.NoError(t, tx.Rollback())
}
