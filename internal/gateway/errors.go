package gateway

import "errors"

var (
	ErrAuth              = errors.New("authentication failed")
	ErrRegistration      = errors.New("registration failed")
	ErrSync              = errors.New("balance sync failed")
	ErrPayment           = errors.New("payment failed")
	ErrAdminAuth         = errors.New("admin credential missing or invalid")
	ErrAdjustment        = errors.New("balance adjustment failed")
	ErrMalformedResponse = errors.New("malformed response")
	ErrRequest           = errors.New("request failed")
	ErrSessionExpired    = errors.New("session token rejected")
)

// Fallback messages shown when the server does not provide one.
const (
	MsgLoginFailed    = "Erro ao entrar. Verifique suas credenciais."
	MsgRegisterFailed = "Erro ao criar conta."
	MsgSyncFailed     = "Erro ao sincronizar dados."
	MsgPaymentFailed  = "Erro na transação"
	MsgInvalidAmount  = "Por favor, insira um valor válido."
	MsgSearchFailed   = "Erro ao buscar usuários."
	MsgAdjustFailed   = "Erro ao atualizar saldo."
	MsgInvalidDelta   = "Valor de ajuste inválido."
	MsgAdminAuth      = "Sessão de administrador inválida. Faça login novamente."
	MsgMalformed      = "Resposta inválida do servidor."
	MsgSessionExpired = "Sua sessão expirou. Faça login novamente."
)

// Error is returned by every Gateway call. Kind is one of the sentinel
// errors above; Err is the underlying cause, if any. Error() is the message
// meant for the user: the server's own text when it sent one.
type Error struct {
	Kind    error
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Kind != nil {
		return e.Kind.Error()
	}
	return "request failed"
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Message extracts the user-facing text of err, or fallback when err carries
// none.
func Message(err error, fallback string) string {
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	return fallback
}
