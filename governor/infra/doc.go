// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - Store: token bucket por chave usando golang.org/x/time/rate (teto de retries)
//   - ChanPool: semáforo simples para limite de operações em voo
//   - MemoryStatsStore, RedisStatsStore, PrometheusStatsStore: eventos do governor
//   - MultiStatsStore: fan-out para vários StatsStore
package infra
