package email

import (
	"fmt"
	"html"

	"github.com/ecoverde/compost-service/internal/models"
	"github.com/resend/resend-go/v2"
	"github.com/sirupsen/logrus"
)

// ReceiptRenderer genera el comprobante adjunto al email de baja
type ReceiptRenderer interface {
	GenerateDeletionReceipt(owner *models.Owner, result *models.CascadeResult) ([]byte, error)
}

// ResendService maneja el envío de correos electrónicos usando Resend API
type ResendService struct {
	client    *resend.Client
	fromEmail string
	receipts  ReceiptRenderer
	logger    *logrus.Logger
}

// NewResendService crea una nueva instancia de ResendService
func NewResendService(apiKey, fromEmail string, logger *logrus.Logger) *ResendService {
	return &ResendService{
		client:    resend.NewClient(apiKey),
		fromEmail: fromEmail,
		logger:    logger,
	}
}

// WithReceipts adjunta un comprobante PDF a cada email de baja
func (s *ResendService) WithReceipts(r ReceiptRenderer) *ResendService {
	s.receipts = r
	return s
}

// SendAccountDeletedEmail confirma al propietario que su cuenta y sus datos fueron eliminados
func (s *ResendService) SendAccountDeletedEmail(owner *models.Owner, result *models.CascadeResult) error {
	if owner == nil || owner.Email == "" {
		return fmt.Errorf("owner has no email address")
	}

	subject := "Tu cuenta ha sido eliminada"
	htmlContent := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Cuenta eliminada</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2>Hola %s,</h2>
        <p>Hemos eliminado tu cuenta de propietario (DNI %s) junto con todos sus datos asociados:</p>
        <ul>
            <li><strong>Puntos de recogida:</strong> %d</li>
            <li><strong>Contenedores:</strong> %d</li>
            <li><strong>Recogidas:</strong> %d</li>
            <li><strong>Facturaciones:</strong> %d</li>
        </ul>
        <p>Gracias por haber compostado con nosotros.</p>
        <p style="font-size: 14px; color: #666;">Este es un email automático, por favor no respondas.</p>
    </div>
</body>
</html>`,
		html.EscapeString(owner.Name),
		html.EscapeString(owner.DNI),
		result.CollectionPoints,
		result.Containers,
		result.PickupEvents,
		result.BillingRecords,
	)

	request := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{owner.Email},
		Subject: subject,
		Html:    htmlContent,
	}

	// Un comprobante fallido no impide el envío
	if s.receipts != nil {
		pdfData, err := s.receipts.GenerateDeletionReceipt(owner, result)
		if err != nil {
			s.logger.WithError(err).WithField("dni", owner.DNI).Warn("Could not generate deletion receipt")
		} else {
			request.Attachments = []*resend.Attachment{{
				Content:     pdfData,
				Filename:    fmt.Sprintf("baja-%s.pdf", owner.DNI),
				ContentType: "application/pdf",
			}}
		}
	}

	sent, err := s.client.Emails.Send(request)
	if err != nil {
		return fmt.Errorf("error sending email via Resend: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"email_id": sent.Id,
		"dni":      owner.DNI,
	}).Info("Account deletion email sent via Resend")

	return nil
}
