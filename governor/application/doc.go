// Package application contém as regras de aplicação do governor: classificação
// de erros, decisão de retry (backoff exponencial), política de upload e
// aquisição de vagas em voo.
//
// Ele depende apenas do pacote domain e não conhece net/http nem goroutines.
// Ex.: RetryPolicy.Decide(err, retries) retorna uma Decision (retry + delay).
package application
