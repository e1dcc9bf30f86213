package services

import (
	"fmt"
	"net/url"

	"github.com/ecoverde/compost-service/internal/models"
	"github.com/ecoverde/compost-service/internal/upstream"
)

// PlanDeletion describe las fases de borrado en orden de dependencia:
// recogidas, contenedores, puntos de recogida, facturaciones y por último el
// propietario. Las fases vacías se mantienen para que la lista tenga siempre
// la misma forma.
func PlanDeletion(dni string, res Resolution) []models.CascadePhase {
	pickups := make([]string, 0, len(res.PickupEvents))
	for _, r := range res.PickupEvents {
		pickups = append(pickups, resourcePath(upstream.PathPickupEvents, r.ID))
	}

	containers := make([]string, 0, len(res.Containers))
	for _, c := range res.Containers {
		containers = append(containers, resourcePath(upstream.PathContainers, c.ID))
	}

	points := make([]string, 0, len(res.CollectionPoints))
	for _, p := range res.CollectionPoints {
		points = append(points, resourcePath(upstream.PathCollectionPoints, p.ID))
	}

	billing := make([]string, 0, len(res.BillingRecords))
	for _, b := range res.BillingRecords {
		billing = append(billing, resourcePath(upstream.PathBillingRecords, b.ID))
	}

	return []models.CascadePhase{
		{Kind: models.PhaseDeletePickups, Targets: pickups},
		{Kind: models.PhaseDeleteContainers, Targets: containers},
		{Kind: models.PhaseDeletePoints, Targets: points},
		{Kind: models.PhaseDeleteBilling, Targets: billing},
		{Kind: models.PhaseDeleteOwner, Targets: []string{OwnerPath(dni)}},
	}
}

// OwnerPath retorna la ruta del propietario en la API externa
func OwnerPath(dni string) string {
	return upstream.PathOwners + "/" + url.PathEscape(dni)
}

func resourcePath(collection string, id int64) string {
	return fmt.Sprintf("%s/%d", collection, id)
}
