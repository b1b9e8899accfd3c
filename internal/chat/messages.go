package chat

const helpTemplate = "Snipper Help\n" +
	"Hi %s, just send me your snippets!\n" +
	"Commands:\n" +
	"*help*: Print this text.\n" +
	"*last*: Print the last successfully received snippet.\n" +
	"*status*: Print the status of Snipper.\n" +
	"*whoami*: See who you are.\n"

const statusTemplate = "Snipper status: %s\n%s"

const noLastRecord = "Sorry, I could not find any previous snippets for you."

var successMessages = []string{
	":)",
	"Rock on!",
	"Great work!",
	"You must be feeling lucky!",
	"Thanks!",
	"Keep up the good work!",
	"Awesome!",
	"=D",
	"Radical!",
	"Excellent!",
	"Way to go!",
	"Woohoo!",
	"Nice job!",
}

var cheekyMessages = []string{
	`:\`,
	"Is that the best you can do?",
	"Really?",
	"Meets expectations.",
	"Sigh...",
	"I think you do better.",
	":|",
	"Um, okay.",
	"Get back to work.",
	"Slacker!",
	"Yikes.",
	"Oh bother.",
}
