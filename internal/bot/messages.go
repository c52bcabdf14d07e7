// ABOUTME: Reply text catalog for the voice bot, keyed by language
// ABOUTME: Spanish is the default; English is selected by an en-* activity locale

package bot

import (
	"fmt"
	"strings"
)

// Messages holds the reply templates for one language.
type Messages struct {
	Farewell       string // name
	FarewellNoName string
	Thanks         string // name as typed
	Repeat         string // name, text
	Bored          string // name
	NoAnswer       string // name
	Welcome        string
	WelcomeBack    string // name, game
	QuestionGame   string
	RepeatGame     string
	Stop           string
	EventReceived  string // event name
}

var spanish = &Messages{
	Farewell:       "Adiós %s!",
	FarewellNoName: "Adiós!",
	Thanks:         "Gracias %s, ahora sí voy a repetir lo que digas.",
	Repeat:         "%s, dijiste %s",
	Bored:          "A ver %s, esto está un poco aburrido, mejor hazme preguntas.",
	NoAnswer:       "Perdona %s, pero no tengo idea, prueba preguntarme otra cosa.",
	Welcome:        "Hola, soy un demo de Alexa con Bot Framework y voy a repetir todo lo que digas, para empezar, por favor, dime tu nombre",
	WelcomeBack:    "Hola %s, %s",
	QuestionGame:   "Ahora estamos jugando a que tú me haces preguntas.",
	RepeatGame:     "seguimos con el mismo juego, dime cualquier cosa para repetirla.",
	Stop:           "Terminando la sesión",
	EventReceived:  "Event received: %s",
}

var english = &Messages{
	Farewell:       "Goodbye %s!",
	FarewellNoName: "Goodbye!",
	Thanks:         "Thanks %s, now I'll repeat whatever you say.",
	Repeat:         "%s, you said %s",
	Bored:          "Come on %s, this is getting a bit boring, better ask me questions.",
	NoAnswer:       "Sorry %s, I have no idea, try asking me something else.",
	Welcome:        "Hi, I'm an Alexa with Bot Framework demo and I'll repeat everything you say, to start, please, tell me your name",
	WelcomeBack:    "Hi %s, %s",
	QuestionGame:   "Now we're playing a game where you ask me questions.",
	RepeatGame:     "we're still playing the same game, say anything and I'll repeat it.",
	Stop:           "Ending the session",
	EventReceived:  "Event received: %s",
}

// Catalog selects Messages by activity locale.
type Catalog struct {
	byLang map[string]*Messages
	def    *Messages
}

// NewCatalog returns a catalog that falls back to defaultLocale's language.
func NewCatalog(defaultLocale string) *Catalog {
	c := &Catalog{
		byLang: map[string]*Messages{
			"es": spanish,
			"en": english,
		},
	}
	c.def = c.byLang[language(defaultLocale)]
	if c.def == nil {
		c.def = spanish
	}
	return c
}

// For returns the messages for locale, or the default language.
func (c *Catalog) For(locale string) *Messages {
	if m, ok := c.byLang[language(locale)]; ok {
		return m
	}
	return c.def
}

// isGoodbye reports whether text is "adiós", ignoring case and the accent.
// The phrase is the same in every language.
func isGoodbye(text string) bool {
	t := strings.TrimSpace(text)
	return strings.EqualFold(t, "adiós") || strings.EqualFold(t, "adios")
}

// FarewellTo renders the goodbye reply.
func (m *Messages) FarewellTo(name string) string {
	if name == "" {
		return m.FarewellNoName
	}
	return fmt.Sprintf(m.Farewell, name)
}

// Greeting renders the launch greeting for a record.
func (m *Messages) Greeting(name string, questionGame bool) string {
	if name == "" {
		return m.Welcome
	}
	game := m.RepeatGame
	if questionGame {
		game = m.QuestionGame
	}
	return fmt.Sprintf(m.WelcomeBack, name, game)
}

func language(locale string) string {
	lang, _, _ := strings.Cut(strings.ToLower(locale), "-")
	return lang
}
