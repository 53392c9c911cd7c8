package governor

import (
	"errors"
	"fmt"

	"filevault-client/governor/application"
)

var (
	// ErrClosed é devolvido para submissões feitas depois de Close.
	ErrClosed = errors.New("governor closed")
	// ErrNilOperation é devolvido quando a operação submetida é nil.
	ErrNilOperation = errors.New("nil operation")
	// ErrInFlightTimeout: Policy.InFlightTimeout esgotou antes de uma vaga
	// em voo ser liberada. A operação nunca foi despachada.
	ErrInFlightTimeout = application.ErrSlotTimeout
)

// PanicError embrulha um panic ocorrido dentro de uma operação.
// É classificado como fatal (sem retry).
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("operation panicked: %v", e.Value)
}

// IsPanicError retorna true se err (ou algum erro embrulhado) é um *PanicError.
func IsPanicError(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
