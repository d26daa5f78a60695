// Package domain define contratos e tipos de domínio do filtro de IP (blacklist).
//
// Este pacote não depende de net/http nem de implementações concretas de store.
// Aqui ficam as regras puras: avaliação do registro de ban (Evaluate) e
// classificação do sinal devolvido pelo pipeline (SignalTokens.Classify).
package domain
