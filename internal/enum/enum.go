package enum

// ── Group A: State machines (CHECK constrained in DB) ──

// Order statuses follow the lifecycle:
// pendente → aceito → preparando → enviado → (em_rota →) entregue/concluido,
// with cancelado as the absorbing alternate state.
const (
	OrderStatusPendente   = "pendente"
	OrderStatusAceito     = "aceito"
	OrderStatusPreparando = "preparando"
	OrderStatusEnviado    = "enviado"
	OrderStatusEmRota     = "em_rota"
	OrderStatusEntregue   = "entregue"
	OrderStatusConcluido  = "concluido"
	OrderStatusCancelado  = "cancelado"
)

// Item statuses mirror the subset of order statuses used for per-item
// tracking (bar items can be served while kitchen items are still cooking).
const (
	ItemStatusPendente   = "pendente"
	ItemStatusPreparando = "preparando"
	ItemStatusEntregue   = "entregue"
	ItemStatusCancelado  = "cancelado"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	UserRoleOwner   = "OWNER"
	UserRoleManager = "MANAGER"
	UserRoleWaiter  = "WAITER"
	UserRoleKitchen = "KITCHEN"
	UserRoleCashier = "CASHIER"
	UserRoleCourier = "COURIER"
)

// Channels are the fulfillment context of an order; immutable after creation.
const (
	ChannelMesa     = "mesa"
	ChannelRetirada = "retirada"
	ChannelEntrega  = "entrega"
)

// ── Group B: Configurable labels (no DB constraint) ──

const (
	PaymentMethodDinheiro    = "dinheiro"
	PaymentMethodCardMachine = "card_machine"
	PaymentMethodPix         = "pix"
	PaymentMethodNaoPago     = "nao_pago"
)

const (
	DiscountTypePercent = "percent"
	DiscountTypeFixed   = "fixed"
)
