package sandbox

import (
	"encoding/json"

	lua "github.com/Shopify/go-lua"

	"github.com/andrescamacho/takaro-connector/internal/adapters/api"
)

// pushHelpers leaves the helper module table on the stack
func (s *session) pushHelpers(l *lua.State) {
	l.NewTable()
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "getData", Function: s.getData},
		{Name: "getTakaro", Function: s.getTakaro},
	}, 0)
}

func (s *session) getData(l *lua.State) int {
	pushValue(l, s.data)
	return 1
}

// getTakaro returns the platform client bound to the token in data, or to
// the session token when data carries none.
func (s *session) getTakaro(l *lua.State) int {
	b := &binding{session: s, token: s.token}
	if l.TypeOf(1) == lua.TypeTable {
		l.Field(1, "token")
		if t, ok := l.ToString(-1); ok && t != "" {
			b.token = t
		}
		l.Pop(1)
	}

	l.NewTable()
	l.NewTable()
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "sendMessage", Function: b.sendMessage},
		{Name: "executeCommand", Function: b.executeCommand},
		{Name: "giveItem", Function: b.giveItem},
		{Name: "listPlayers", Function: b.listPlayers},
	}, 0)
	l.SetField(-2, "gameserver")
	l.NewTable()
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "get", Function: b.getVariable},
		{Name: "set", Function: b.setVariable},
	}, 0)
	l.SetField(-2, "variable")
	return 1
}

// binding is a platform client scoped to one token
type binding struct {
	session *session
	token   string
}

func (b *binding) platform(l *lua.State) Platform {
	if b.session.platform == nil {
		lua.Errorf(l, "%s", "platform API is not available")
	}
	return b.session.platform
}

func (b *binding) raise(l *lua.State, err error) {
	lua.Errorf(l, "%s", err.Error())
}

func (b *binding) moduleID() string {
	mod, ok := b.session.data["module"].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := mod["moduleId"].(string)
	return id
}

func (b *binding) sendMessage(l *lua.State) int {
	gameServerID := lua.CheckString(l, 1)
	msg := lua.CheckString(l, 2)
	recipient := lua.OptString(l, 3, "")
	if err := b.platform(l).SendMessage(b.session.ctx, b.token, gameServerID, msg, recipient); err != nil {
		b.raise(l, err)
	}
	return 0
}

func (b *binding) executeCommand(l *lua.State) int {
	gameServerID := lua.CheckString(l, 1)
	command := lua.CheckString(l, 2)
	res, err := b.platform(l).ExecuteCommand(b.session.ctx, b.token, gameServerID, command)
	if err != nil {
		b.raise(l, err)
	}
	pushValue(l, map[string]any{"rawResult": res.RawResult, "success": res.Success})
	return 1
}

func (b *binding) giveItem(l *lua.State) int {
	gameServerID := lua.CheckString(l, 1)
	playerGameID := lua.CheckString(l, 2)
	item := lua.CheckString(l, 3)
	amount := lua.OptInteger(l, 4, 1)
	if err := b.platform(l).GiveItem(b.session.ctx, b.token, gameServerID, playerGameID, item, amount); err != nil {
		b.raise(l, err)
	}
	return 0
}

func (b *binding) listPlayers(l *lua.State) int {
	gameServerID := lua.CheckString(l, 1)
	players, err := b.platform(l).ListPlayers(b.session.ctx, b.token, gameServerID)
	if err != nil {
		b.raise(l, err)
	}
	pushValue(l, players)
	return 1
}

func (b *binding) getVariable(l *lua.State) int {
	v := api.Variable{
		Key:          lua.CheckString(l, 1),
		GameServerID: lua.OptString(l, 2, ""),
		ModuleID:     b.moduleID(),
	}
	found, err := b.platform(l).GetVariable(b.session.ctx, b.token, v)
	if err != nil {
		b.raise(l, err)
	}
	if found == nil {
		l.PushNil()
		return 1
	}
	l.PushString(found.Value)
	return 1
}

// setVariable stores strings as-is and any other value as JSON
func (b *binding) setVariable(l *lua.State) int {
	key := lua.CheckString(l, 1)
	var value string
	if l.TypeOf(2) == lua.TypeString {
		value, _ = l.ToString(2)
	} else {
		raw, err := json.Marshal(toValue(l, 2))
		if err != nil {
			b.raise(l, err)
		}
		value = string(raw)
	}
	v := api.Variable{
		Key:          key,
		Value:        value,
		GameServerID: lua.OptString(l, 3, ""),
		ModuleID:     b.moduleID(),
	}
	if err := b.platform(l).SetVariable(b.session.ctx, b.token, v); err != nil {
		b.raise(l, err)
	}
	return 0
}
