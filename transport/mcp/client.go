package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/evacuation-drill/api"
	"github.com/wricardo/evacuation-drill/drill/config"
	"github.com/wricardo/evacuation-drill/drill/session"
)

// Client is a thin MCP server that proxies to the monitor REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the monitor API at baseURL
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Evacuation Drill Monitor",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Evacuation Drill - MCP Interface

Read-only view of a running evacuation drill. Occupants connect to the drill
over TCP, walk a grid toward the door, step out and wait for a rescuer to hand
them a mask. These tools let you watch; they cannot move anyone.

AVAILABLE TOOLS:
- room_state: Grid of occupant counts, totals and rescuer availability
- list_occupants: Live connections with their state and position
- get_occupant: One connection in detail
- describe_cell: Count, capacity and names on one cell
- drill_config: The drill's startup configuration

Grid coordinates are (row, col), zero-based, row 0 at the top.`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "room_state",
		Description: "Get the room grid, occupant count and free rescuers",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleRoomState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_occupants",
		Description: "List live drill connections, oldest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"state": map[string]interface{}{
					"type":        "string",
					"description": "Only connections in this state",
					"enum":        []string{"awaiting_identity", "active", "exiting"},
				},
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of connections to return",
				},
			},
		},
	}, c.handleListOccupants)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_occupant",
		Description: "Get details of one drill connection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session ID from list_occupants",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleGetOccupant)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "describe_cell",
		Description: "Get the occupant count, capacity and names on one grid cell",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"row": map[string]interface{}{
					"type":        "number",
					"description": "Row, 0 at the top",
				},
				"col": map[string]interface{}{
					"type":        "number",
					"description": "Column, 0 at the left",
				},
			},
			Required: []string{"row", "col"},
		},
	}, c.handleDescribeCell)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "drill_config",
		Description: "Get the drill's startup configuration",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleDrillConfig)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// Tool handlers

func (c *Client) handleRoomState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var room api.RoomResponse
	if err := c.apiCall(ctx, "/api/room", &room); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatRoom(&room)), nil
}

func (c *Client) handleListOccupants(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	query := url.Values{}
	if state, _ := args["state"].(string); state != "" {
		query.Set("state", state)
	}
	if limit, ok := args["limit"].(float64); ok && limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", int(limit)))
	}

	path := "/api/occupants"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var response struct {
		Count     int            `json:"count"`
		Total     int            `json:"total"`
		Occupants []session.Info `json:"occupants"`
	}
	if err := c.apiCall(ctx, path, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Occupants (%d of %d):\n\n", response.Count, response.Total))
	for _, info := range response.Occupants {
		result.WriteString("- " + formatOccupantLine(info) + "\n")
	}
	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleGetOccupant(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := request.GetArguments()["session_id"].(string)
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	var info session.Info
	if err := c.apiCall(ctx, "/api/occupants/"+url.PathEscape(sessionID), &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatOccupant(info)), nil
}

func (c *Client) handleDescribeCell(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	row, okRow := args["row"].(float64)
	col, okCol := args["col"].(float64)
	if !okRow || !okCol {
		return mcp.NewToolResultError("row and col are required numbers"), nil
	}
	if row < 0 || col < 0 {
		return mcp.NewToolResultError(fmt.Sprintf("Cell (%d, %d) is outside the room", int(row), int(col))), nil
	}

	var cell api.CellResponse
	if err := c.apiCall(ctx, fmt.Sprintf("/api/room/cells/%d/%d", int(row), int(col)), &cell); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Cell %s\n", cell.Pos))
	result.WriteString(fmt.Sprintf("Occupants: %d/%d", cell.Count, cell.MaxPerCell))
	if cell.Full {
		result.WriteString(" (full, moves into this cell are refused)")
	}
	result.WriteString("\n")
	if cell.Door {
		result.WriteString("This is the door: stepping out of the room from here exits.\n")
	}
	if len(cell.Occupants) > 0 {
		result.WriteString("Names: " + strings.Join(cell.Occupants, ", ") + "\n")
	}
	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleDrillConfig(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var cfg config.DrillConfig
	if err := c.apiCall(ctx, "/api/config", &cfg); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf(`Drill: %s
%s
Room: %d cols x %d rows, at most %d per cell
Door: %s
Rescuers: %d (mask time %s)
Protocol: %s on port %d
`, cfg.Name, cfg.Description, cfg.Width, cfg.Height, cfg.MaxPerCell,
		cfg.Door, cfg.Rescuers, cfg.MaskDuration, cfg.Codec, cfg.Port)
	return mcp.NewToolResultText(result), nil
}

// Formatting helpers

func formatRoom(room *api.RoomResponse) string {
	if room.Snapshot == nil {
		return "No room state available"
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Room %dx%d | Occupants: %d (seated %d) | Rescuers free: %d/%d | Max per cell: %d\n",
		room.Width, room.Height, room.OccupantCount, room.Seated,
		room.FreeRescuers, room.Rescuers, room.MaxPerCell))
	if len(room.States) > 0 {
		result.WriteString(fmt.Sprintf("Connections: %d awaiting identity, %d active, %d exiting\n",
			room.States["awaiting_identity"], room.States["active"], room.States["exiting"]))
	}
	result.WriteString("\n")

	// D marks an empty door cell, digits are occupant counts, '.' is empty
	for r, row := range room.Grid {
		for c, n := range row {
			switch {
			case n > 9:
				result.WriteString("+")
			case n > 0:
				result.WriteString(fmt.Sprintf("%d", n))
			case r == room.Door.Row && c == room.Door.Col:
				result.WriteString("D")
			default:
				result.WriteString(".")
			}
		}
		result.WriteString("\n")
	}
	return result.String()
}

func formatOccupantLine(info session.Info) string {
	name := info.Name
	if name == "" {
		name = "(unidentified)"
	}
	return fmt.Sprintf("%s %s [%s] at %s, moves %d, refused %d",
		info.ID, name, info.State, info.Pos, info.Moves, info.Denied)
}

func formatOccupant(info session.Info) string {
	return fmt.Sprintf(`Session: %s
Name: %s
Remote: %s
State: %s
Position: %s
Exited: %t | Masked: %t
Moves: %d (refused %d)
Connected: %s
`, info.ID, info.Name, info.RemoteAddr, info.State, info.Pos,
		info.Exited, info.HasMask, info.Moves, info.Denied,
		info.ConnectedAt.Format("2006-01-02 15:04:05"))
}
