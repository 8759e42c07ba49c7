package terminal

type commandGroup uint8

const (
	otherCmds commandGroup = iota
	imageCmds
	tableCmds
	queryCmds
	dataCmds
)

type commandGroupDescription struct {
	description string
	group       commandGroup
}

var commandGroupDescriptions = []commandGroupDescription{
	{"Selecting the image", imageCmds},
	{"Listing tables", tableCmds},
	{"Resolving names and addresses", queryCmds},
	{"Reading the contents of the image", dataCmds},
	{"Other commands", otherCmds},
}
