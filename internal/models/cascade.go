package models

import (
	"time"

	"github.com/google/uuid"
)

// PhaseKind identifica una fase del borrado en cascada
type PhaseKind string

const (
	PhaseFetch            PhaseKind = "fetch"
	PhaseDeletePickups    PhaseKind = "delete_pickups"
	PhaseDeleteContainers PhaseKind = "delete_containers"
	PhaseDeletePoints     PhaseKind = "delete_points"
	PhaseDeleteBilling    PhaseKind = "delete_billing"
	PhaseDeleteOwner      PhaseKind = "delete_owner"
)

// PhaseOrder es el orden fijo de ejecución
var PhaseOrder = []PhaseKind{
	PhaseFetch,
	PhaseDeletePickups,
	PhaseDeleteContainers,
	PhaseDeletePoints,
	PhaseDeleteBilling,
	PhaseDeleteOwner,
}

var phaseLabels = map[PhaseKind]string{
	PhaseFetch:            "Obteniendo datos",
	PhaseDeletePickups:    "Eliminando recogidas",
	PhaseDeleteContainers: "Eliminando contenedores",
	PhaseDeletePoints:     "Eliminando puntos de recogida",
	PhaseDeleteBilling:    "Eliminando facturaciones",
	PhaseDeleteOwner:      "Eliminando propietario",
}

// Label retorna la descripción visible de la fase
func (k PhaseKind) Label() string {
	if label, ok := phaseLabels[k]; ok {
		return label
	}
	return string(k)
}

// StepStatus representa el estado de una fase
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepError      StepStatus = "error"
)

// CascadePhase describe qué borrar en una fase; no ejecuta nada
type CascadePhase struct {
	Kind    PhaseKind `json:"kind"`
	Targets []string  `json:"targets"`
}

// CascadeStep es el estado visible de una fase
type CascadeStep struct {
	Phase  PhaseKind  `json:"phase"`
	Label  string     `json:"label"`
	Status StepStatus `json:"status"`
	Done   int        `json:"done"`
	Total  int        `json:"total"`
}

// CascadeProgress es una instantánea inmutable del progreso
type CascadeProgress struct {
	Percent int           `json:"percent"`
	Steps   []CascadeStep `json:"steps"`
}

// CascadeResult resume un borrado en cascada terminado con éxito
type CascadeResult struct {
	RunID            uuid.UUID `json:"run_id"`
	DNI              string    `json:"dni"`
	PickupEvents     int       `json:"recogidas"`
	Containers       int       `json:"contenedores"`
	CollectionPoints int       `json:"puntos_recogida"`
	BillingRecords   int       `json:"facturaciones"`
	ArchiveURL       *string   `json:"archive_url,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// CascadeRunStatus es el resultado registrado en auditoría
type CascadeRunStatus string

const (
	CascadeRunRunning   CascadeRunStatus = "running"
	CascadeRunCompleted CascadeRunStatus = "completed"
	CascadeRunFailed    CascadeRunStatus = "failed"
)

// CascadeRun es el registro de auditoría de una ejecución
type CascadeRun struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	DNI         string           `json:"dni" db:"dni"`
	Status      CascadeRunStatus `json:"status" db:"status"`
	FailedPhase *string          `json:"failed_phase,omitempty" db:"failed_phase"`
	ErrorText   *string          `json:"error,omitempty" db:"error_text"`
	Deleted     int              `json:"deleted" db:"deleted"`
	ArchiveURL  *string          `json:"archive_url,omitempty" db:"archive_url"`
	StartedAt   time.Time        `json:"started_at" db:"started_at"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty" db:"finished_at"`
}
