package upstream

import (
	"errors"
	"fmt"
)

// ErrNotFound se retorna cuando la API externa responde 404 a una lectura puntual
var ErrNotFound = errors.New("resource not found")

// FetchError indica que la lectura de una colección falló
type FetchError struct {
	Path       string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("error fetching %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("error fetching %s: HTTP %d", e.Path, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// DeleteError indica que el borrado de un recurso falló
type DeleteError struct {
	Path       string
	StatusCode int
	Err        error
}

func (e *DeleteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("error deleting %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("error deleting %s: HTTP %d", e.Path, e.StatusCode)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}

// ParseError indica que la respuesta no tiene la forma esperada. Index es -1
// cuando falla el documento completo.
type ParseError struct {
	Path  string
	Index int
	Err   error
}

func (e *ParseError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid response from %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("invalid record %d from %s: %v", e.Index, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
