package application

import (
	"errors"
	"time"

	"filevault-client/governor/domain"
)

// maxShift evita overflow de BaseDelay << retries.
const maxShift = 30

// Decision é o resultado da política para uma tentativa que falhou.
type Decision struct {
	Class domain.ErrorClass
	Retry bool
	// Delay é a espera até a próxima tentativa. Só faz sentido se Retry.
	Delay time.Duration
}

// Classify traduz o erro de uma tentativa em uma domain.ErrorClass.
//
// Um status 429 é rate limit; qualquer outro status é fatal. Sem status (ou
// status 0), um código de transporte não vazio indica falha de rede.
func Classify(err error) domain.ErrorClass {
	if err == nil {
		return domain.ClassNone
	}

	var sc domain.StatusCoder
	if errors.As(err, &sc) {
		switch code := sc.StatusCode(); {
		case code == domain.StatusTooManyRequests:
			return domain.ClassRateLimited
		case code != 0:
			return domain.ClassFatal
		}
	}

	var tc domain.TransportCoder
	if errors.As(err, &tc) && tc.TransportCode() != "" {
		return domain.ClassNetwork
	}
	return domain.ClassFatal
}

// RetryPolicy concentra a regra de retry das operações comuns.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Backoff devolve BaseDelay * 2^retries.
func (p RetryPolicy) Backoff(retries int) time.Duration {
	if retries < 0 {
		retries = 0
	}
	if retries > maxShift {
		retries = maxShift
	}
	return p.BaseDelay << uint(retries)
}

// Decide recebe o erro da tentativa e quantos retries já foram feitos.
func (p RetryPolicy) Decide(err error, retries int) Decision {
	class := Classify(err)
	if !class.Retryable() || retries >= p.MaxRetries {
		return Decision{Class: class}
	}
	return Decision{Class: class, Retry: true, Delay: p.Backoff(retries)}
}

// UploadPolicy é a política simplificada dos uploads: só rate limit gera
// retry, uma única vez, após uma espera fixa.
type UploadPolicy struct {
	RetryWait time.Duration
}

func (p UploadPolicy) Decide(err error, retries int) Decision {
	class := Classify(err)
	if class != domain.ClassRateLimited || retries > 0 {
		return Decision{Class: class}
	}
	return Decision{Class: class, Retry: true, Delay: p.RetryWait}
}
