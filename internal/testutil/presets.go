package testutil

// Preset account credentials used by WithStandardTestData.
const (
	BotUser     = "Bot@wikictl"
	BotPassword = "hunter2"
)

// WithStandardTestData adds a small wiki: a main page, a sandbox, an
// article with an extract and coordinates, a redirect to it, and one bot
// account.
func (b *Builder) WithStandardTestData() *Builder {
	return b.
		WithPage("Main Page", Text("Welcome to the test wiki.")).
		WithPage("Sandbox", Text("Scratch space.\n")).
		WithPage("Go (programming language)",
			Text("'''Go''' is a statically typed, compiled programming language."),
			Extract("Go is a statically typed, compiled programming language."),
			Coordinates(37.4, -122.1)).
		WithPage("Golang", RedirectTo("Go (programming language)")).
		WithUser(BotUser, BotPassword)
}
