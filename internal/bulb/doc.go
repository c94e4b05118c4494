// Package bulb wraps the command channel in a per-bulb handle with cached
// state, push handling and diagnostics.
//
// Params are plain maps; building setPilot payloads (scenes, colours) is up
// to the caller:
//
//	b := bulb.New("192.168.1.20", client)
//	if err := b.TurnOn(ctx, map[string]interface{}{"dimming": 50, "temp": 2700}); err != nil {
//	    return err
//	}
//	pilot, err := b.UpdateState(ctx)
package bulb
