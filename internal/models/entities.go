package models

// Las entidades las define y persiste la API externa. Cada registro embebe su
// padre (contenedor -> punto de recogida -> propietario) y cualquiera de esas
// referencias puede venir vacía.

// Owner representa un propietario, la entidad raíz de la cuenta
type Owner struct {
	DNI   string `json:"dni" validate:"required,max=20"`
	Name  string `json:"nombre"`
	Phone string `json:"telefono,omitempty"`
	Email string `json:"email,omitempty"`
}

// WasteType representa un tipo de residuo
type WasteType struct {
	ID   int64  `json:"id" validate:"required"`
	Name string `json:"nombre"`
}

// CollectionPoint representa una dirección de un propietario donde se ubican contenedores
type CollectionPoint struct {
	ID         int64  `json:"id" validate:"required"`
	Address    string `json:"direccion"`
	PostalCode string `json:"codigoPostal,omitempty"`
	Town       string `json:"localidad,omitempty"`
	Province   string `json:"provincia,omitempty"`
	OpensAt    string `json:"horaInicio,omitempty"`
	ClosesAt   string `json:"horaFin,omitempty"`
	SourceType string `json:"tipoOrigen,omitempty"`
	Owner      *Owner `json:"propietario,omitempty"`
}

// Container representa un contenedor de residuos ubicado en un punto de recogida
type Container struct {
	ID              int64            `json:"id" validate:"required"`
	Capacity        int              `json:"capacidad"`
	WasteType       *WasteType       `json:"tipoResiduo,omitempty"`
	CollectionPoint *CollectionPoint `json:"puntoRecogida,omitempty"`
}

// PickupEvent representa una recogida solicitada o realizada de un contenedor
type PickupEvent struct {
	ID          int64      `json:"id" validate:"required"`
	RequestedAt string     `json:"fechaSolicitud,omitempty"`
	EstimatedAt string     `json:"fechaEstimada,omitempty"`
	CollectedAt *string    `json:"fechaRecogida,omitempty"`
	Incident    *string    `json:"incidencia,omitempty"`
	Container   *Container `json:"contenedor,omitempty"`
}

// BillingRecord representa el total acumulado de un propietario para un tipo de residuo
type BillingRecord struct {
	ID        int64      `json:"id" validate:"required"`
	Total     float64    `json:"total"`
	Owner     *Owner     `json:"propietario,omitempty"`
	WasteType *WasteType `json:"tipoResiduo,omitempty"`
}

// OwnerDNI retorna el DNI del propietario del punto, o "" si la referencia falta
func (p *CollectionPoint) OwnerDNI() string {
	if p == nil || p.Owner == nil {
		return ""
	}
	return p.Owner.DNI
}

// OwnerDNI retorna el DNI del propietario del contenedor a través de su punto
func (c *Container) OwnerDNI() string {
	if c == nil {
		return ""
	}
	return c.CollectionPoint.OwnerDNI()
}

// OwnerDNI retorna el DNI del propietario de la recogida a través de su contenedor
func (r *PickupEvent) OwnerDNI() string {
	if r == nil {
		return ""
	}
	return r.Container.OwnerDNI()
}

// OwnerDNI retorna el DNI del propietario facturado
func (b *BillingRecord) OwnerDNI() string {
	if b == nil || b.Owner == nil {
		return ""
	}
	return b.Owner.DNI
}
