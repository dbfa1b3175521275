package admission

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var messages = map[Reason]map[language.Tag]string{
	ReasonSlotNotFound: {
		language.English: "This slot is no longer available",
		language.Italian: "Questo slot non è più disponibile",
	},
	ReasonIntervalNotFound: {
		language.English: "The selected time is not offered in this slot",
		language.Italian: "L'orario selezionato non è previsto in questo slot",
	},
	ReasonCategoryMismatch: {
		language.English: "This slot is not open to your category",
		language.Italian: "Questo slot non è aperto alla tua categoria",
	},
	ReasonDeadlinePassed: {
		language.English: "Bookings for this month are closed",
		language.Italian: "Le prenotazioni per questo mese sono chiuse",
	},
	ReasonCapacityExceeded: {
		language.English: "This slot is full",
		language.Italian: "Questo slot è al completo",
	},
	ReasonDateMismatch: {
		language.English: "The requested date does not match the slot",
		language.Italian: "La data richiesta non corrisponde allo slot",
	},
}

func init() {
	mustRegisterMessages()
}

func registerMessages() error {
	for reason, byTag := range messages {
		for tag, text := range byTag {
			if err := message.SetString(tag, reason.key(), text); err != nil {
				return fmt.Errorf("register %s/%s: %w", tag, reason, err)
			}
		}
	}
	return nil
}

func mustRegisterMessages() {
	if err := registerMessages(); err != nil {
		panic(err)
	}
}

var supported = language.NewMatcher([]language.Tag{language.English, language.Italian})

func (r Reason) key() string { return "admission." + string(r) }

// Message returns the localized text for r, falling back to English.
func (r Reason) Message(tag language.Tag) string {
	_, index, _ := supported.Match(tag)
	locale := language.English
	if index == 1 {
		locale = language.Italian
	}
	return message.NewPrinter(locale).Sprintf(r.key())
}
