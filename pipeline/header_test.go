package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecoverNarrative(t *testing.T) {
	task := newTask(t.TempDir(), nil, classificationPlan())
	h := processedHeader(task, "/d/LABK-processed.tab", "/d/LABK-raw.tab", 200, fixedClock(), processingNarrative{
		added:      []string{"sex==F", "age>=65"},
		removed:    []string{"pat_id", "order_time"},
		eliminated: []string{"LABNA.last"},
		target:     3,
		algorithm:  "recursive-elimination",
	})

	added, removed, eliminated := recoverNarrative(h)
	assert.Equal(t, []string{"sex==F", "age>=65"}, added)
	assert.Equal(t, []string{"pat_id", "order_time"}, removed)
	assert.Equal(t, []string{"LABNA.last"}, eliminated)

	h = processedHeader(task, "/d/p.tab", "/d/r.tab", 200, fixedClock(), processingNarrative{target: 1, algorithm: "univariate"})
	added, removed, eliminated = recoverNarrative(h)
	assert.Nil(t, added)
	assert.Nil(t, removed)
	assert.Nil(t, eliminated)
}
