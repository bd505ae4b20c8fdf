package wordlist

import _ "embed"

//go:embed api_dict.txt
var embeddedDictionary string

//go:embed user_agents.txt
var embeddedUserAgents string
