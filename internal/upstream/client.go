package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ecoverde/compost-service/internal/metrics"
	"github.com/ecoverde/compost-service/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Rutas de las colecciones de la API externa
const (
	PathOwners           = "/propietarios"
	PathCollectionPoints = "/puntos-recogida"
	PathContainers       = "/contenedores"
	PathPickupEvents     = "/recogidas"
	PathBillingRecords   = "/facturaciones"
	PathWasteTypes       = "/tipos-residuo"
	PathPrices           = "/precios"
)

const maxBodySize = 16 << 20

// Fetcher lee colecciones completas
type Fetcher interface {
	FetchCollection(ctx context.Context, path string) ([]json.RawMessage, error)
}

// Deleter elimina un recurso por su ruta
type Deleter interface {
	DeleteResource(ctx context.Context, path string) error
}

// ResourceClient es lo que necesita el borrado en cascada de la API externa
type ResourceClient interface {
	Fetcher
	Deleter
}

// Client es el cliente HTTP de la API externa. No reintenta ni cachea.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient crea un cliente contra baseURL
func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// BaseURL retorna el origen configurado
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchCollection obtiene una colección completa como registros sin interpretar
func (c *Client) FetchCollection(ctx context.Context, path string) ([]json.RawMessage, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil, "")
	if err != nil {
		return nil, &FetchError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, &FetchError{Path: path, StatusCode: resp.StatusCode}
	}

	var records []json.RawMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&records); err != nil {
		return nil, &ParseError{Path: path, Index: -1, Err: err}
	}

	c.logger.WithFields(logrus.Fields{
		"path":    path,
		"records": len(records),
	}).Debug("Collection fetched from upstream")

	return records, nil
}

// DeleteResource elimina un único recurso
func (c *Client) DeleteResource(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodDelete, path, nil, nil, "")
	if err != nil {
		return &DeleteError{Path: path, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeleteError{Path: path, StatusCode: resp.StatusCode}
	}

	c.logger.WithField("path", path).Debug("Resource deleted in upstream")
	return nil
}

// FetchOne obtiene un único registro y lo decodifica en out
func (c *Client) FetchOne(ctx context.Context, path string, out interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil, "")
	if err != nil {
		return &FetchError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FetchError{Path: path, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(out); err != nil {
		return &ParseError{Path: path, Index: -1, Err: err}
	}
	if err := validateRecord(out); err != nil {
		return &ParseError{Path: path, Index: -1, Err: err}
	}
	return nil
}

// ForwardRequest es una petición reenviada tal cual desde el proxy
type ForwardRequest struct {
	Method      string
	Path        string
	Query       url.Values
	Body        []byte
	ContentType string
}

// ForwardResponse es la respuesta de la API externa para el proxy
type ForwardResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Forward reenvía una petición arbitraria a la API externa
func (c *Client) Forward(ctx context.Context, req ForwardRequest) (*ForwardResponse, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	resp, err := c.do(ctx, req.Method, req.Path, req.Query, body, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("error forwarding %s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("error reading upstream response: %w", err)
	}

	return &ForwardResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	metrics.ObserveUpstream(method, status, err, time.Since(start))

	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
		}).WithError(err).Warn("Upstream request failed")
		return nil, err
	}
	return resp, nil
}

var validate = validator.New()

// FetchAs lee una colección y valida cada registro en la frontera. Sólo se
// exige el identificador propio del registro; los padres embebidos pueden faltar.
func FetchAs[T any](ctx context.Context, f Fetcher, path string) ([]T, error) {
	raw, err := f.FetchCollection(ctx, path)
	if err != nil {
		return nil, err
	}
	return DecodeRecords[T](path, raw)
}

// DecodeRecords interpreta y valida registros ya obtenidos
func DecodeRecords[T any](path string, raw []json.RawMessage) ([]T, error) {
	items := make([]T, 0, len(raw))
	for i, record := range raw {
		var item T
		if err := json.Unmarshal(record, &item); err != nil {
			return nil, &ParseError{Path: path, Index: i, Err: err}
		}
		if err := validateRecord(&item); err != nil {
			return nil, &ParseError{Path: path, Index: i, Err: err}
		}
		items = append(items, item)
	}
	return items, nil
}

func validateRecord(item interface{}) error {
	var field string
	switch item.(type) {
	case *models.Owner:
		field = "DNI"
	default:
		field = "ID"
	}
	return validate.StructPartial(item, field)
}
