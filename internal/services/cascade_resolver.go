package services

import "github.com/ecoverde/compost-service/internal/models"

// Collections es la instantánea de las cuatro colecciones leídas al inicio de un borrado
type Collections struct {
	CollectionPoints []models.CollectionPoint
	Containers       []models.Container
	PickupEvents     []models.PickupEvent
	BillingRecords   []models.BillingRecord
}

// Resolution son los registros que pertenecen a un propietario, en el orden de entrada
type Resolution struct {
	CollectionPoints []models.CollectionPoint
	Containers       []models.Container
	PickupEvents     []models.PickupEvent
	BillingRecords   []models.BillingRecord
}

// Count retorna el total de registros dependientes
func (r Resolution) Count() int {
	return len(r.CollectionPoints) + len(r.Containers) + len(r.PickupEvents) + len(r.BillingRecords)
}

// ResolveOwnership filtra las colecciones a lo que pertenece a dni siguiendo las
// referencias embebidas. Una referencia ausente significa "no pertenece".
func ResolveOwnership(dni string, in Collections) Resolution {
	res := Resolution{
		CollectionPoints: []models.CollectionPoint{},
		Containers:       []models.Container{},
		PickupEvents:     []models.PickupEvent{},
		BillingRecords:   []models.BillingRecord{},
	}
	if dni == "" {
		return res
	}

	for i := range in.CollectionPoints {
		if in.CollectionPoints[i].OwnerDNI() == dni {
			res.CollectionPoints = append(res.CollectionPoints, in.CollectionPoints[i])
		}
	}
	for i := range in.Containers {
		if in.Containers[i].OwnerDNI() == dni {
			res.Containers = append(res.Containers, in.Containers[i])
		}
	}
	for i := range in.PickupEvents {
		if in.PickupEvents[i].OwnerDNI() == dni {
			res.PickupEvents = append(res.PickupEvents, in.PickupEvents[i])
		}
	}
	for i := range in.BillingRecords {
		if in.BillingRecords[i].OwnerDNI() == dni {
			res.BillingRecords = append(res.BillingRecords, in.BillingRecords[i])
		}
	}

	return res
}
