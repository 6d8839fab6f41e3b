// Package command implements the slash commands that change the approval
// mode.
//
// # Commands
//
//   - /mode            lists the modes and marks the current one
//   - /mode <name>     switches to the named mode (aliases such as auto-edit are accepted)
//   - /plan            switches to plan mode
//   - /yolo            switches to yolo mode unless it is disabled by configuration
//   - /cycle           advances default, auto_edit, plan and back to default
//   - /help            lists the commands
//
// Every command funnels through approvalmode.State, the same setter used by
// the keyboard cycle and the in-agent mode tools. A rejected transition is
// returned as an *approvalmode.TransitionError and the mode stays unchanged.
//
// # Usage
//
//	exec := command.NewExecutor(mode)
//	res, err := exec.ExecuteLine(ctx, "/mode plan")
//	if err != nil {
//		return err
//	}
//	fmt.Println(res.Output)
package command
