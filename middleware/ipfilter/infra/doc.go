// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisBanStore: GET / SET PX NX sobre github.com/redis/go-redis/v9
//   - MemoryBanStore: store em memória com TTL, para testes e instância única
//   - CachedBanStore: cache local (ristretto) de bans já existentes
//   - LimiterStore: token bucket por identidade usando golang.org/x/time/rate
//   - SlotPool: semáforo simples para limitar chamadas ao store
//   - Stats: memória, Redis e Prometheus
package infra
