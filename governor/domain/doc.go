// Package domain define contratos e tipos de domínio do governor de requisições.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros das regras de retry/upload
// e desacoplar essas regras de detalhes de infraestrutura (Redis, Prometheus,
// token bucket).
package domain
