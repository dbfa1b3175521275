package errors

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLocale is used when the caller does not name one.
var DefaultLocale = language.English

const genericFailureKey = "error.generic"

var userMessages = []struct {
	tag  language.Tag
	key  string
	text string
}{
	{language.English, genericFailureKey, "Something went wrong, please try again later"},
	{language.Italian, genericFailureKey, "Si è verificato un errore, riprova più tardi"},
	{language.English, string(CodeIdentityNotFound), "This booking link is not valid anymore"},
	{language.Italian, string(CodeIdentityNotFound), "Questo link di prenotazione non è più valido"},
}

func init() {
	for _, m := range userMessages {
		if err := message.SetString(m.tag, m.key, m.text); err != nil {
			panic(fmt.Errorf("register %s/%s: %w", m.tag, m.key, err))
		}
	}
}

// UserMessage returns the message an end user may see for err. Only codes
// with a registered translation are shown; everything else is reported as a
// generic failure so internal state never leaks.
func UserMessage(err error, tag language.Tag) string {
	printer := message.NewPrinter(matchLocale(tag))
	if IsCode(err, CodeIdentityNotFound) {
		return printer.Sprintf(string(CodeIdentityNotFound))
	}
	return printer.Sprintf(genericFailureKey)
}

var supported = language.NewMatcher([]language.Tag{language.English, language.Italian})

func matchLocale(tag language.Tag) language.Tag {
	if tag == language.Und {
		return DefaultLocale
	}
	_, index, _ := supported.Match(tag)
	if index == 1 {
		return language.Italian
	}
	return language.English
}
