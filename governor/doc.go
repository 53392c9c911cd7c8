// Package governor controla o tempo das requisições de saída do cliente File Vault.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (Policy, ErrorClass, StatsEvent), sem net/http
//   - application: regras puras (classificação de erro, backoff, política de upload)
//   - infra: token bucket por chave, semáforo, stores de estatística (memória, Redis, Prometheus)
//   - governor (este pacote): fila FIFO + pacer + laço de retry + caminho de upload
//
// Fluxo de uma operação:
//
//  1. Submit/SubmitUpload enfileiram a operação e devolvem um *Future
//  2. O drain loop (um único por Governor) respeita Policy.MinInterval entre
//     despachos de primeira tentativa, em ordem de chegada
//  3. Falhas de rate limit (429) ou de rede são repetidas com backoff
//     exponencial fora da fila; as demais vão direto para o Future
//  4. Uploads rodam dentro do drain loop e seguram a fila por um cooldown
//     depois do sucesso
//
// Não há cancelamento: uma operação aceita sempre termina. Quem não precisa
// mais do resultado simplesmente descarta o Future.
package governor
