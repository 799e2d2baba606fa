// Package application contém os casos de uso do protocolo do semáforo:
// inicialização (criar-ou-adotar), aquisição e liberação como laços de
// read-modify-CAS com orçamento de tentativas.
//
// Ele depende apenas do pacote domain e não conhece nenhum backend concreto.
package application
