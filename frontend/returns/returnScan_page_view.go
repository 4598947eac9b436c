package returns

import (
	"fmt"
	"html"
	"strings"

	sharedhtml "returnscan/frontend/shared/html"
)

// renderScanPage renders the return-scan screen: live progress, the item
// manifest and the camera/manual scan controls. The inspection dialog is
// driven entirely by the embedded script against the JSON API.
func renderScanPage(data ProgressData) string {
	var b strings.Builder
	b.WriteString(`<main class="mx-auto max-w-3xl p-4" data-order-id="`)
	fmt.Fprintf(&b, "%d", data.OrderID)
	b.WriteString(`" id="scan-root">`)

	b.WriteString(`<h1 class="text-xl font-semibold">Return scan: `)
	b.WriteString(html.EscapeString(data.OrderReference))
	b.WriteString(`</h1>`)

	fmt.Fprintf(&b, `<div class="mt-3"><progress id="return-progress" class="progress progress-primary w-full" value="%d" max="100"></progress>`, data.PercentComplete)
	fmt.Fprintf(&b, `<p class="text-sm opacity-70"><span id="progress-label">%d of %d items scanned (%d%%)</span></p></div>`, data.ItemsScanned, data.TotalItems, data.PercentComplete)

	b.WriteString(`<table class="table table-sm mt-4 bg-base-100"><thead><tr><th>Item</th><th>Tracking</th><th class="text-right">Scanned</th></tr></thead><tbody id="item-rows">`)
	for _, item := range data.Items {
		b.WriteString(`<tr data-qr="`)
		b.WriteString(html.EscapeString(item.QRCode))
		b.WriteString(`"><td>`)
		b.WriteString(html.EscapeString(item.AssetName))
		b.WriteString(`</td><td>`)
		b.WriteString(html.EscapeString(item.TrackingMethod))
		fmt.Fprintf(&b, `</td><td class="text-right tabular-nums">%d / %d</td></tr>`, item.ScannedQuantity, item.RequiredQuantity)
	}
	b.WriteString(`</tbody></table>`)

	b.WriteString(`<div class="mt-4 flex gap-2">`)
	b.WriteString(`<button id="start-scan" class="btn btn-primary" type="button">Start camera</button>`)
	b.WriteString(`<form id="manual-form" class="join flex-1"><input id="manual-code" class="input input-bordered join-item flex-1" placeholder="Enter code manually"><button class="btn join-item" type="submit">Add</button></form>`)
	b.WriteString(`</div>`)
	b.WriteString(`<div id="scan-reader" class="mt-3 hidden h-72 w-full overflow-hidden rounded-lg bg-neutral"></div>`)
	b.WriteString(`<p id="scan-status" class="mt-2 text-sm opacity-70">Camera idle</p>`)

	// Inspection dialog; shown when a decoded code resolves to an open line.
	b.WriteString(`<dialog id="inspection-modal" class="modal"><div class="modal-box">`)
	b.WriteString(`<h3 id="inspection-title" class="text-lg font-semibold"></h3>`)
	b.WriteString(`<div class="mt-3 join w-full" id="condition-group">`)
	b.WriteString(`<button type="button" class="btn join-item flex-1" data-condition="GREEN">Green</button>`)
	b.WriteString(`<button type="button" class="btn join-item flex-1" data-condition="ORANGE">Orange</button>`)
	b.WriteString(`<button type="button" class="btn join-item flex-1" data-condition="RED">Red</button>`)
	b.WriteString(`</div>`)
	b.WriteString(`<label class="form-control mt-2"><span class="label-text">Notes</span><textarea id="inspection-notes" class="textarea textarea-bordered"></textarea></label>`)
	b.WriteString(`<label class="form-control mt-2" id="refurb-field"><span class="label-text">Refurb days estimate</span><input id="refurb-days" type="number" min="0" class="input input-bordered" value="0"></label>`)
	b.WriteString(`<label class="form-control mt-2"><span class="label-text">Discrepancy reason</span><select id="discrepancy-reason" class="select select-bordered"><option value="">None</option><option>BROKEN</option><option>LOST</option><option>OTHER</option></select></label>`)
	b.WriteString(`<label class="form-control mt-2 hidden" id="quantity-field"><span class="label-text">Quantity returned</span><input id="inspection-quantity" type="number" min="1" class="input input-bordered" value="1"></label>`)
	b.WriteString(`<label class="form-control mt-2"><span class="label-text">Photos</span><input id="inspection-photos" type="file" accept="image/*" multiple class="file-input file-input-bordered"></label>`)
	b.WriteString(`<p id="inspection-errors" class="mt-2 text-sm text-error"></p>`)
	b.WriteString(`<div class="modal-action"><button id="inspection-cancel" class="btn" type="button">Cancel</button><button id="inspection-submit" class="btn btn-primary" type="button">Submit</button></div>`)
	b.WriteString(`</div></dialog>`)

	b.WriteString(renderScanPageScript())
	b.WriteString(`</main>`)
	return sharedhtml.RenderLayout("Return Scan - "+data.OrderReference, b.String())
}

func renderScanPageScript() string {
	return `<script src="https://unpkg.com/html5-qrcode@2.3.8/html5-qrcode.min.js"></script>
<script>
(function () {
  const root = document.getElementById("scan-root");
  const orderID = root.dataset.orderId;
  const api = "/api/orders/" + orderID;
  const QUIET_WINDOW_MS = 2000;

  let items = {};
  let busy = false;
  let lastAccepted = { code: "", at: 0 };
  let draft = null;
  let scanner = null;

  function setStatus(msg) {
    document.getElementById("scan-status").textContent = msg;
  }

  async function refreshProgress() {
    const res = await fetch(api + "/return-progress");
    if (!res.ok) return;
    render(await res.json());
  }

  function render(data) {
    items = {};
    const rows = [];
    for (const item of data.Items) {
      items[item.QRCode] = item;
      rows.push('<tr data-qr="' + item.QRCode + '"><td>' + item.AssetName + "</td><td>" + item.TrackingMethod +
        '</td><td class="text-right tabular-nums">' + item.ScannedQuantity + " / " + item.RequiredQuantity + "</td></tr>");
    }
    document.getElementById("item-rows").innerHTML = rows.join("");
    document.getElementById("return-progress").value = data.PercentComplete;
    document.getElementById("progress-label").textContent =
      data.ItemsScanned + " of " + data.TotalItems + " items scanned (" + data.PercentComplete + "%)";
    if (data.PercentComplete === 100 && data.OrderStatus !== "returned") {
      completeReturn();
    }
  }

  async function completeReturn() {
    const res = await fetch(api + "/complete-return", { method: "POST" });
    if (!res.ok) {
      setStatus("Completing the return failed; scan data is saved. Retrying is safe.");
      return;
    }
    const body = await res.json();
    setStatus("Order fully returned (" + body.NewStatus + ")");
    stopScanner();
  }

  function onCode(code, manual) {
    if (busy) return;
    const now = Date.now();
    if (!manual && code === lastAccepted.code && now - lastAccepted.at < QUIET_WINDOW_MS) return;
    lastAccepted = { code: code, at: now };

    const item = items[code];
    if (!item) {
      setStatus("Unknown code: " + code);
      return;
    }
    if (item.ScannedQuantity >= item.RequiredQuantity) {
      setStatus(item.AssetName + " is already fully scanned");
      return;
    }
    busy = true;
    openInspection(item);
  }

  function openInspection(item) {
    draft = { item: item, condition: "", key: crypto.randomUUID() };
    document.getElementById("inspection-title").textContent = item.AssetName + " (" + item.QRCode + ")";
    document.getElementById("inspection-notes").value = "";
    document.getElementById("refurb-days").value = "0";
    document.getElementById("discrepancy-reason").value = "";
    document.getElementById("inspection-quantity").value = "1";
    document.getElementById("inspection-photos").value = "";
    document.getElementById("inspection-errors").textContent = "";
    document.getElementById("quantity-field").classList.toggle("hidden", item.TrackingMethod !== "BATCH");
    for (const btn of document.querySelectorAll("#condition-group button")) btn.classList.remove("btn-active");
    document.getElementById("inspection-modal").showModal();
  }

  function closeInspection() {
    draft = null;
    busy = false;
    document.getElementById("inspection-modal").close();
  }

  async function submitInspection() {
    if (!draft) return;
    const form = new FormData();
    form.set("qrCode", draft.item.QRCode);
    form.set("condition", draft.condition);
    form.set("notes", document.getElementById("inspection-notes").value);
    form.set("refurbDaysEstimate", document.getElementById("refurb-days").value || "0");
    form.set("discrepancyReason", document.getElementById("discrepancy-reason").value);
    form.set("quantity", document.getElementById("inspection-quantity").value || "1");
    for (const file of document.getElementById("inspection-photos").files) form.append("photos", file);

    let res;
    try {
      // The key is minted once per draft, so a retry of the same draft can
      // never apply the quantity twice.
      res = await fetch(api + "/inspections", {
        method: "POST",
        headers: { "Idempotency-Key": draft.key },
        body: form
      });
    } catch (err) {
      document.getElementById("inspection-errors").textContent =
        "Network error; your entries are kept. Submit again to retry.";
      return;
    }
    if (res.status === 422) {
      const body = await res.json();
      document.getElementById("inspection-errors").textContent =
        (body.Fields || []).map(function (f) { return f.Message; }).join("; ") || body.Error;
      return;
    }
    if (!res.ok) {
      document.getElementById("inspection-errors").textContent =
        "Submission failed (" + res.status + "); your entries are kept.";
      return;
    }
    closeInspection();
    await refreshProgress();
  }

  async function startScanner() {
    if (scanner) return;
    document.getElementById("scan-reader").classList.remove("hidden");
    setStatus("Starting camera...");
    try {
      scanner = new Html5Qrcode("scan-reader");
      await scanner.start({ facingMode: "environment" }, { fps: 10, qrbox: 220 },
        function (text) { onCode(text, false); });
      setStatus("Camera running");
    } catch (err) {
      scanner = null;
      setStatus("Camera unavailable; use manual entry");
    }
  }

  function stopScanner() {
    if (!scanner) return;
    scanner.stop().catch(function () {});
    scanner = null;
    document.getElementById("scan-reader").classList.add("hidden");
  }

  document.getElementById("start-scan").addEventListener("click", startScanner);
  document.getElementById("manual-form").addEventListener("submit", function (e) {
    e.preventDefault();
    const input = document.getElementById("manual-code");
    const code = input.value.trim();
    input.value = "";
    if (code) onCode(code, true);
  });
  for (const btn of document.querySelectorAll("#condition-group button")) {
    btn.addEventListener("click", function () {
      if (!draft) return;
      draft.condition = btn.dataset.condition;
      for (const other of document.querySelectorAll("#condition-group button")) other.classList.remove("btn-active");
      btn.classList.add("btn-active");
    });
  }
  document.getElementById("inspection-cancel").addEventListener("click", closeInspection);
  document.getElementById("inspection-submit").addEventListener("click", submitInspection);
})();
</script>`
}
