package domain

import (
	"errors"
	"time"
)

// Policy reúne as constantes de tempo do governor.
type Policy struct {
	// MinInterval é o intervalo mínimo entre dois despachos de primeira tentativa.
	MinInterval time.Duration
	// MaxRetries limita os retries de uma operação comum (sem contar a
	// primeira tentativa).
	MaxRetries int
	// BaseDelay é a unidade do backoff: o retry k espera BaseDelay * 2^k.
	BaseDelay time.Duration

	// UploadCooldown segura o drain loop após um upload bem-sucedido quando
	// o chamador não informa o seu.
	UploadCooldown time.Duration
	// UploadRetryWait é a espera fixa antes do único retry de upload.
	UploadRetryWait time.Duration

	// PaceRetries devolve os retries para a fila cadenciada em vez de
	// despachá-los direto quando o backoff termina.
	PaceRetries bool

	// MaxInFlight limita as operações cuja cadeia de tentativas ainda não
	// terminou. 0 = sem limite.
	MaxInFlight int
	// InFlightTimeout limita a espera por uma vaga. 0 = espera indefinidamente.
	InFlightTimeout time.Duration
}

// DefaultPolicy: 2 requisições por segundo, 3 retries com backoff 1s, 2s, 4s.
var DefaultPolicy = Policy{
	MinInterval:     500 * time.Millisecond,
	MaxRetries:      3,
	BaseDelay:       1000 * time.Millisecond,
	UploadCooldown:  1000 * time.Millisecond,
	UploadRetryWait: 2000 * time.Millisecond,
}

func (p Policy) Validate() error {
	if p.MinInterval < 0 {
		return errors.New("MinInterval must be >= 0")
	}
	if p.MaxRetries < 0 {
		return errors.New("MaxRetries must be >= 0")
	}
	if p.BaseDelay < 0 {
		return errors.New("BaseDelay must be >= 0")
	}
	if p.UploadCooldown < 0 {
		return errors.New("UploadCooldown must be >= 0")
	}
	if p.UploadRetryWait < 0 {
		return errors.New("UploadRetryWait must be >= 0")
	}
	if p.MaxInFlight < 0 {
		return errors.New("MaxInFlight must be >= 0")
	}
	if p.InFlightTimeout < 0 {
		return errors.New("InFlightTimeout must be >= 0")
	}
	return nil
}
