package services

import (
	"bytes"
	"fmt"

	"github.com/ecoverde/compost-service/internal/models"
	"github.com/jung-kurt/gofpdf"
	"github.com/sirupsen/logrus"
)

// ReceiptGenerator genera el comprobante PDF de un borrado de cuenta
type ReceiptGenerator struct {
	logger *logrus.Logger
}

// NewReceiptGenerator crea una nueva instancia del generador
func NewReceiptGenerator(logger *logrus.Logger) *ReceiptGenerator {
	return &ReceiptGenerator{
		logger: logger,
	}
}

// GenerateDeletionReceipt genera el PDF que acompaña al email de cuenta eliminada
func (g *ReceiptGenerator) GenerateDeletionReceipt(owner *models.Owner, result *models.CascadeResult) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("cascade result is required")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	// Cabecera
	pdf.SetFillColor(46, 125, 50)
	pdf.Rect(0, 0, 210, 35, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Arial", "B", 20)
	pdf.Cell(190, 12, tr("COMPROBANTE DE BAJA"))
	pdf.Ln(12)
	pdf.SetFont("Arial", "", 11)
	pdf.Cell(190, 8, fmt.Sprintf("Referencia: %s", result.RunID))
	pdf.Ln(8)

	pdf.SetTextColor(44, 62, 80)
	pdf.SetY(45)
	pdf.SetFont("Arial", "B", 13)
	pdf.Cell(190, 8, "PROPIETARIO")
	pdf.Ln(9)

	name := "N/A"
	if owner != nil && owner.Name != "" {
		name = owner.Name
	}
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(190, 6, tr(name))
	pdf.Ln(6)
	pdf.Cell(190, 6, fmt.Sprintf("DNI: %s", result.DNI))
	pdf.Ln(6)
	pdf.Cell(190, 6, fmt.Sprintf("Fecha de baja: %s", result.FinishedAt.Format("02/01/2006 15:04")))
	pdf.Ln(12)

	// Tabla de registros eliminados
	pdf.SetFont("Arial", "B", 11)
	pdf.SetFillColor(232, 245, 233)
	pdf.CellFormat(130, 9, "Registro", "1", 0, "L", true, 0, "")
	pdf.CellFormat(50, 9, "Eliminados", "1", 0, "C", true, 0, "")
	pdf.Ln(9)

	rows := []struct {
		label string
		count int
	}{
		{"Recogidas", result.PickupEvents},
		{"Contenedores", result.Containers},
		{"Puntos de recogida", result.CollectionPoints},
		{"Facturaciones", result.BillingRecords},
		{"Cuenta de propietario", 1},
	}

	pdf.SetFont("Arial", "", 10)
	pdf.SetFillColor(255, 255, 255)
	for _, row := range rows {
		pdf.CellFormat(130, 8, tr(row.label), "1", 0, "L", true, 0, "")
		pdf.CellFormat(50, 8, fmt.Sprintf("%d", row.count), "1", 0, "C", true, 0, "")
		pdf.Ln(8)
	}

	pdf.Ln(10)
	pdf.SetFont("Arial", "I", 9)
	pdf.MultiCell(190, 5, tr("Los datos se han eliminado de forma definitiva. Conserve este comprobante como justificante de la baja."), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("error generating PDF: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"run_id": result.RunID,
		"dni":    result.DNI,
		"size":   buf.Len(),
	}).Debug("Deletion receipt generated")

	return buf.Bytes(), nil
}
