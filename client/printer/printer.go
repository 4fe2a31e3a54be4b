package printer

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yeremiapane/concessions-app/models"
	"github.com/yeremiapane/concessions-app/utils"
)

// Receipt is what the local print bridge renders. Amounts travel as decimal
// strings; the bridge never does arithmetic.
type Receipt struct {
	OrderNumber string        `json:"order_number"`
	TheaterName string        `json:"theater_name"`
	PlacedAt    *time.Time    `json:"placed_at,omitempty"`
	Items       []ReceiptItem `json:"items"`
	SubTotal    string        `json:"sub_total"`
	Discount    string        `json:"discount"`
	CGST        string        `json:"cgst"`
	SGST        string        `json:"sgst"`
	GrandTotal  string        `json:"grand_total"`
	Method      string        `json:"method"`
}

type ReceiptItem struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"line_total"`
}

// BuildReceipt flattens an order into its printable form.
func BuildReceipt(order *models.Order, theaterName string) Receipt {
	r := Receipt{
		OrderNumber: order.OrderNumber,
		TheaterName: theaterName,
		PlacedAt:    order.PlacedAt,
		SubTotal:    order.SubTotal.StringFixed(2),
		Discount:    order.DiscountAmount.StringFixed(2),
		CGST:        order.CGSTAmount.StringFixed(2),
		SGST:        order.SGSTAmount.StringFixed(2),
		GrandTotal:  order.GrandTotal.StringFixed(2),
		Method:      order.PaymentMethod,
	}
	for _, item := range order.Items {
		r.Items = append(r.Items, ReceiptItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal.StringFixed(2),
		})
	}
	return r
}

// Bridge pushes receipts to the local websocket print service. Printing is
// best effort: a dead bridge never blocks an order.
type Bridge struct {
	URL     string
	Timeout time.Duration
}

func NewBridge(url string) *Bridge {
	return &Bridge{URL: url, Timeout: 5 * time.Second}
}

// Print dials the bridge and sends one receipt. Errors are logged and
// returned but callers treat them as non-fatal.
func (b *Bridge) Print(receipt Receipt) error {
	if b.URL == "" {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: b.Timeout}
	conn, _, err := dialer.Dial(b.URL, nil)
	if err != nil {
		utils.ErrorLogger.Printf("print bridge unreachable for order %s: %v", receipt.OrderNumber, err)
		return fmt.Errorf("print bridge dial: %w", err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(b.Timeout))
	if err := conn.WriteJSON(receipt); err != nil {
		utils.ErrorLogger.Printf("print bridge write failed for order %s: %v", receipt.OrderNumber, err)
		return fmt.Errorf("print bridge write: %w", err)
	}
	return nil
}
