package providers

import "mudamail/internal/store"

func configFor(name string) store.EmailConfig {
	return store.EmailConfig{
		Provider:  name,
		APIKey:    "key",
		ServerID:  "mg.mudatech.com.br",
		FromEmail: "contato@mudatech.com.br",
		FromName:  "MudaTech",
		Active:    true,
	}
}
