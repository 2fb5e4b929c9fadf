// Package orderbuilder translates structured action calls from the speech
// endpoint into order mutations. Rejections are silent for the caller and
// visible only in logs: the conversation never surfaces a technical error.
package orderbuilder

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/hotslice/voicedesk/internal/model/call"
	"github.com/hotslice/voicedesk/internal/model/menu"
	"github.com/hotslice/voicedesk/internal/model/order"
)

var (
	ErrUnknownAction  = errors.New("unknown action")
	ErrBadArguments   = errors.New("malformed action arguments")
	ErrItemNotOnMenu  = errors.New("item not on menu")
	ErrZeroPrice      = errors.New("item resolves to zero price")
	ErrInvalidMethod  = errors.New("invalid delivery method")
	ErrMethodConflict = errors.New("pickup conflicts with delivery address")
	ErrEmptyArgument  = errors.New("empty argument")
)

// Result reports one applied or rejected action.
type Result struct {
	Action string
	// Applied is true when the order was mutated.
	Applied bool
	// Confirmed is true when this action was an explicit order confirmation.
	Confirmed bool
	// Output goes back to the endpoint as the tool result, steering what it
	// says next.
	Output string
}

// MenuProvider returns the current menu snapshot. Each action call resolves
// against the snapshot taken at that moment.
type MenuProvider func() *menu.Index

// Builder applies action calls to session orders.
type Builder struct {
	menu     MenuProvider
	handlers map[string]func(*call.Session, json.RawMessage) (Result, error)
}

// New builds the action dispatch table.
func New(menuProvider MenuProvider) *Builder {
	b := &Builder{menu: menuProvider}
	b.handlers = map[string]func(*call.Session, json.RawMessage) (Result, error){
		"add_item_to_order":   b.addItem,
		"set_delivery_method": b.setDeliveryMethod,
		"set_address":         b.setAddress,
		"set_customer_name":   b.setCustomerName,
		"set_customer_phone":  b.setCustomerPhone,
		"set_payment_method":  b.setPaymentMethod,
		"confirm_order":       b.confirmOrder,
	}
	return b
}

// Apply runs one action against the session's order. The error describes the
// rejection for logging; the order is left untouched on any error.
func (b *Builder) Apply(s *call.Session, action, rawArgs string) (Result, error) {
	handler, ok := b.handlers[action]
	if !ok {
		return Result{Action: action}, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	args := json.RawMessage(rawArgs)
	if strings.TrimSpace(rawArgs) == "" {
		args = json.RawMessage("{}")
	}

	s.Lock()
	defer s.Unlock()
	s.Touch()

	res, err := handler(s, args)
	res.Action = action
	if err != nil {
		log.Printf("[order] rejected %s session=%s: %v", action, s.ID, err)
		return res, err
	}
	log.Printf("[order] applied %s session=%s", action, s.ID)
	return res, nil
}

type addItemArgs struct {
	Name     string `json:"name"`
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

func (b *Builder) addItem(s *call.Session, raw json.RawMessage) (Result, error) {
	var args addItemArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBadArguments, err)
	}
	if strings.TrimSpace(args.Name) == "" {
		return Result{}, fmt.Errorf("%w: name", ErrEmptyArgument)
	}

	snapshot := b.menu()
	item, ok := snapshot.Lookup(args.Name)
	if !ok {
		// Never fabricate an off-menu item: it cannot be priced, and an
		// unpriced line corrupts every downstream total.
		return Result{}, fmt.Errorf("%w: %q", ErrItemNotOnMenu, args.Name)
	}

	size := strings.ToLower(strings.TrimSpace(args.Size))
	if size == "" {
		size = item.DefaultSize()
	}
	price := snapshot.ResolvePrice(item, size)
	if price <= 0 {
		// A zero-price line is worse than a dropped one: it silently zeroes
		// the total.
		return Result{}, fmt.Errorf("%w: %q size=%q", ErrZeroPrice, item.Name, size)
	}

	quantity := args.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	s.Order.AddItem(order.Item{
		Name:     item.Name,
		Size:     size,
		Quantity: quantity,
		Price:    price,
	})

	return Result{
		Applied: true,
		Output:  fmt.Sprintf("added %d x %s %s at $%.2f each", quantity, size, item.Name, price),
	}, nil
}

type methodArgs struct {
	Method string `json:"method"`
}

func (b *Builder) setDeliveryMethod(s *call.Session, raw json.RawMessage) (Result, error) {
	var args methodArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBadArguments, err)
	}

	method, ok := order.ParseDeliveryMethod(args.Method)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidMethod, args.Method)
	}

	// An address on file pins the order to delivery, whichever way the two
	// actions arrived; a later pickup must not leave a pickup order carrying
	// a delivery address.
	if method == order.MethodPickup && strings.TrimSpace(s.Order.Address) != "" {
		return Result{}, fmt.Errorf("%w: pickup requested with address on file", ErrMethodConflict)
	}

	s.Order.DeliveryMethod = method
	return Result{Applied: true, Output: "delivery method set to " + string(method)}, nil
}

type addressArgs struct {
	Address string `json:"address"`
}

func (b *Builder) setAddress(s *call.Session, raw json.RawMessage) (Result, error) {
	var args addressArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBadArguments, err)
	}

	address := strings.TrimSpace(args.Address)
	if address == "" {
		return Result{}, fmt.Errorf("%w: address", ErrEmptyArgument)
	}

	s.Order.Address = address
	// An address implies delivery regardless of arrival order of the two
	// actions; repair the method rather than reject.
	s.Order.DeliveryMethod = order.MethodDelivery

	return Result{Applied: true, Output: "delivery address recorded"}, nil
}

type nameArgs struct {
	Name string `json:"name"`
}

func (b *Builder) setCustomerName(s *call.Session, raw json.RawMessage) (Result, error) {
	var args nameArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBadArguments, err)
	}

	name := strings.TrimSpace(args.Name)
	if name == "" {
		return Result{}, fmt.Errorf("%w: name", ErrEmptyArgument)
	}

	s.Order.CustomerName = name
	return Result{Applied: true, Output: "customer name recorded"}, nil
}

type phoneArgs struct {
	Phone string `json:"phone"`
}

func (b *Builder) setCustomerPhone(s *call.Session, raw json.RawMessage) (Result, error) {
	var args phoneArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBadArguments, err)
	}

	phone := order.NormalizePhone(args.Phone)
	if phone == "" {
		// Keep the raw text when no 10-digit number is extractable; a
		// garbled callback number is still better than none.
		phone = strings.TrimSpace(args.Phone)
	}
	if phone == "" {
		return Result{}, fmt.Errorf("%w: phone", ErrEmptyArgument)
	}

	s.Order.CustomerPhone = phone
	return Result{Applied: true, Output: "phone number recorded"}, nil
}

func (b *Builder) setPaymentMethod(s *call.Session, raw json.RawMessage) (Result, error) {
	var args methodArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBadArguments, err)
	}

	method := strings.TrimSpace(args.Method)
	if method == "" {
		return Result{}, fmt.Errorf("%w: method", ErrEmptyArgument)
	}

	s.Order.PaymentMethod = method
	return Result{Applied: true, Output: "payment method recorded"}, nil
}

func (b *Builder) confirmOrder(s *call.Session, _ json.RawMessage) (Result, error) {
	s.Order.Confirmed = true
	// Logging is not triggered here; the finalization gateway runs its
	// completeness check after a settle delay so in-flight mutations land.
	return Result{
		Applied:   true,
		Confirmed: true,
		Output:    "order confirmed",
	}, nil
}
