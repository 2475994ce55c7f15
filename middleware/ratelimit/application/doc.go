// Package application contém os casos de uso (regras de aplicação) do controle
// de admissão.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: AdmissionController.Admit(ctx, key) retorna uma Decision (allow/deny).
package application
