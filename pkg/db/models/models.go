package models

// All lists every persisted model in dependency order. It drives gorm
// AutoMigrate for sqlite runs, where the goose SQL files do not apply.
func All() []any {
	return []any{
		&User{},
		&Product{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
