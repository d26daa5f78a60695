// Package ipfilter fornece o adapter HTTP (net/http) do filtro de IP com blacklist
// compartilhada em um key-value store (Redis).
//
// Visão geral (camadas):
//
//   - domain: tipos, avaliação do ban e classificação do sinal (sem net/http)
//   - application: Gate (lê, decide, chama o pipeline, grava o ban) sem net/http
//   - infra: stores concretos (Redis, memória, cache ristretto), token bucket, stats
//   - ipfilter (este pacote): middleware HTTP + extração de identidade + tradução
//     da decisão para status/body/headers
//
// Fluxo por request:
//
//  1. Extrai a identidade (IP/header/XFF); identidade ignorada segue direto
//  2. Lê "ipFilter:<identidade>" no store
//  3. Banido: responde 403 (permanente) ou 401 + X-Retry-After (temporário)
//  4. Liberado: chama o próximo handler; se ele devolver o sinal de ban
//     (domain.BanSignal ou um dos tokens), grava o ban com SET NX e responde bloqueado
//
// Os handlers do pipeline seguem HandlerFunc (devolvem error) para poderem
// pedir ban. Handle converte a cadeia em http.Handler na borda.
package ipfilter
