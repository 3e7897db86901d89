package server

// Данный сервер просто объединяет специфичные HTTP сервера, отвечающие за обработку конкретных сущностей
type Server struct {
	SessionServer
	BudgetServer
}

func NewServer(
	sessionServer SessionServer,
	budgetServer BudgetServer,
) Server {
	return Server{
		SessionServer: sessionServer,
		BudgetServer:  budgetServer,
	}
}
