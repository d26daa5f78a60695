// Package application contém os casos de uso do filtro de IP.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Gate.Check(ctx, id, next) lê o ban, chama o restante do pipeline e,
// se o pipeline pedir, grava o ban de forma atômica (create-only).
package application
