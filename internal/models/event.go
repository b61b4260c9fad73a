package models

// EventKind names a notification emitted by a lifecycle operation.
type EventKind string

const (
	EventRaffleCreated       EventKind = "RaffleCreated"
	EventTicketsBought       EventKind = "TicketsBought"
	EventWinnerDrawn         EventKind = "WinnerDrawn"
	EventProductShipped      EventKind = "ProductShipped"
	EventProductDelivered    EventKind = "ProductDelivered"
	EventFundsReleased       EventKind = "FundsReleased"
	EventRaffleCancelled     EventKind = "RaffleCancelled"
	EventParticipantRefunded EventKind = "ParticipantRefunded"
	EventRaffleEnded         EventKind = "RaffleEnded"
)

type RaffleCreated struct {
	Raffle      uint64   `json:"raffle"`
	Seller      Identity `json:"seller"`
	TicketPrice uint64   `json:"ticketPrice"`
	Deadline    int64    `json:"deadline"`
}

type TicketsBought struct {
	Buyer                Identity `json:"buyer"`
	Raffle               uint64   `json:"raffle"`
	TicketsBought        uint8    `json:"numberOfTicketsBought"`
	TotalTicketsNow      uint64   `json:"totalTicketsNow"`
	TotalParticipantsNow uint32   `json:"totalParticipantsNow"`
}

type WinnerDrawn struct {
	Raffle           uint64   `json:"raffle"`
	Winner           Identity `json:"winner"`
	WinnerIndex      int      `json:"winnerIndex"`
	RandomnessSource string   `json:"randomnessSource"`
	Keeper           Identity `json:"keeper"`
}

type ProductShipped struct {
	Raffle    uint64   `json:"raffle"`
	Winner    Identity `json:"winner"`
	ShippedAt int64    `json:"shippedAt"`
}

type ProductDelivered struct {
	Raffle      uint64   `json:"raffle"`
	Winner      Identity `json:"winner"`
	DeliveredAt int64    `json:"deliveredAt"`
}

type FundsReleased struct {
	Raffle uint64   `json:"raffle"`
	Seller Identity `json:"seller"`
	Amount uint64   `json:"amount"`
}

type RaffleCancelled struct {
	Raffle       uint64 `json:"raffle"`
	TotalEntries uint64 `json:"totalEntries"`
	MinTickets   uint32 `json:"minTickets"`
}

type ParticipantRefunded struct {
	Raffle      uint64   `json:"raffle"`
	Participant Identity `json:"participant"`
	Amount      uint64   `json:"amount"`
}

type RaffleEnded struct {
	Raffle   uint64 `json:"raffle"`
	Deadline int64  `json:"deadline"`
}
