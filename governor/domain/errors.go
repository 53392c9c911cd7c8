package domain

// ErrorClass é a classificação de retry de uma tentativa que falhou.
type ErrorClass int

const (
	// ClassNone: erro nil.
	ClassNone ErrorClass = iota
	// ClassRateLimited: o servidor respondeu com status de rate limit (429).
	ClassRateLimited
	// ClassNetwork: nenhuma resposta recebida e a falha traz um código de
	// transporte (connection refused, reset, DNS...).
	ClassNetwork
	// ClassFatal: todo o resto, inclusive respostas de erro bem formadas.
	ClassFatal
)

const StatusTooManyRequests = 429

func (c ErrorClass) Retryable() bool {
	return c == ClassRateLimited || c == ClassNetwork
}

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassRateLimited:
		return "rate_limited"
	case ClassNetwork:
		return "network"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// StatusCoder é implementado por erros que carregam o status da resposta.
type StatusCoder interface {
	StatusCode() int
}

// TransportCoder é implementado por erros ocorridos antes de qualquer resposta.
// Código vazio significa "desconhecido" e não conta como falha de rede.
type TransportCoder interface {
	TransportCode() string
}
