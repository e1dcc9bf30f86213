package services

import (
	"testing"

	"github.com/ecoverde/compost-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanDeletionOrder(t *testing.T) {
	res := ResolveOwnership("12345678A", twoPointsFixture())
	plan := PlanDeletion("12345678A", res)

	require.Len(t, plan, 5)
	assert.Equal(t, models.PhaseDeletePickups, plan[0].Kind)
	assert.Equal(t, []string{"/recogidas/1000", "/recogidas/1001", "/recogidas/1002"}, plan[0].Targets)
	assert.Equal(t, models.PhaseDeleteContainers, plan[1].Kind)
	assert.Equal(t, []string{"/contenedores/100", "/contenedores/101", "/contenedores/102"}, plan[1].Targets)
	assert.Equal(t, models.PhaseDeletePoints, plan[2].Kind)
	assert.Equal(t, []string{"/puntos-recogida/10", "/puntos-recogida/11"}, plan[2].Targets)
	assert.Equal(t, models.PhaseDeleteBilling, plan[3].Kind)
	assert.Equal(t, []string{"/facturaciones/500"}, plan[3].Targets)
	assert.Equal(t, models.PhaseDeleteOwner, plan[4].Kind)
	assert.Equal(t, []string{"/propietarios/12345678A"}, plan[4].Targets)

	// las fases de borrado siguen el orden fijo tras la lectura
	for i, phase := range plan {
		assert.Equal(t, models.PhaseOrder[i+1], phase.Kind)
	}
}

func TestPlanDeletionKeepsEmptyPhases(t *testing.T) {
	plan := PlanDeletion("12345678A", ResolveOwnership("12345678A", Collections{}))

	require.Len(t, plan, 5)
	for _, phase := range plan[:4] {
		assert.NotNil(t, phase.Targets)
		assert.Empty(t, phase.Targets)
	}
	assert.Equal(t, []string{"/propietarios/12345678A"}, plan[4].Targets)
}

func TestOwnerPathEscapesDNI(t *testing.T) {
	assert.Equal(t, "/propietarios/X%2F1", OwnerPath("X/1"))
}
