package httpserver

const (
	ErrInvalidJSON = "json inválido"
	ErrMissingID   = "id ausente"
	ErrDependency  = "erro de dependência"
	ErrNotFound    = "não encontrado"
)
