package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPosIndexesAreNamedAndUniqueWhereNeeded(t *testing.T) {
	unique := map[string]bool{}
	for _, idx := range posIndexes() {
		require.NotNil(t, idx.model.Options)
		require.NotNil(t, idx.model.Options.Name, idx.collection)
		if idx.model.Options.Unique != nil && *idx.model.Options.Unique {
			unique[idx.collection+"."+*idx.model.Options.Name] = true
		}
	}

	assert.True(t, unique["products.barcode_unique"])
	assert.True(t, unique["users.email_unique"])
	assert.True(t, unique["bills.replayKey_unique"])
}
