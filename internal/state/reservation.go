package state

// reservation is the frozen volume one close order holds on a position.
type reservation struct {
	key positionKey

	// seen is false while only trades of the order have arrived.
	seen           bool
	active         bool
	volume         int64
	orderTraded    int64
	tradedByTrades int64
	reserved       int64
}

// desired is what the order should hold given everything seen so far. The
// larger of the two traded figures wins so order and trade events may arrive
// in either order.
func (res *reservation) desired() int64 {
	if !res.active {
		return 0
	}
	return max(res.volume-max(res.orderTraded, res.tradedByTrades), 0)
}

func (r *Reconciler) reservation(localOrderID string, key positionKey) *reservation {
	if res, ok := r.reservations[localOrderID]; ok {
		return res
	}
	res := &reservation{key: key}
	r.reservations[localOrderID] = res
	return res
}

// release forgets a reservation once its order is done and holds nothing.
func (r *Reconciler) release(localOrderID string, res *reservation) {
	if res.seen && !res.active && res.reserved == 0 {
		delete(r.reservations, localOrderID)
	}
}

// reserved sums what live orders hold on one position.
func (r *Reconciler) reserved(key positionKey) int64 {
	var sum int64
	for _, res := range r.reservations {
		if res.key == key {
			sum += res.reserved
		}
	}
	return sum
}

// Reserved returns the frozen volume a close order currently holds.
func (r *Reconciler) Reserved(localOrderID string) int64 {
	if res, ok := r.reservations[localOrderID]; ok {
		return res.reserved
	}
	return 0
}
