package handler

import "go.uber.org/zap"

// Response messages shown verbatim by the client.
const (
	msgInvalidRequest = "Requisição inválida"
	msgMissingFields  = "Preencha todos os campos"
	msgUserExists     = "Este usuário já existe"
	msgAccountCreated = "Conta criada!"
	msgBadCredentials = "Usuário ou senha incorretos"
	msgUserNotFound   = "Usuário não encontrado"
	msgInsufficient   = "Saldo insuficiente"
	msgInvalidAmount  = "Valor inválido"
	msgForbidden      = "Acesso negado"
	msgKeyReused      = "Chave de idempotência já utilizada"
	msgPaymentDone    = "Sucesso"
	msgBalanceUpdated = "Saldo atualizado"
	msgInternal       = "Erro interno"
	msgTokenFailed    = "Não foi possível iniciar a sessão"
	msgInvalidToken   = "Sessão inválida. Faça login novamente."
)

const idempotencyKeyHead = "Idempotency-Key"

func logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
